// Package logs reads back the olcsync log file.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait for new lines in follow mode. A Filter narrows lines to one scope, one
// run or a minimum level and understands both the console and the JSON line
// formats written by package logging.
package logs
