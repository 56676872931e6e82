// Package logs reads webuploadd log files for `webupload logs`.
//
// Last returns the final lines of a log with bounded memory. Follow polls the
// file for appended lines and starts over when webuploadd.log is repointed at
// a new run or the file is truncated.
package logs
