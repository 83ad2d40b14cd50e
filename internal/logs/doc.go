// Package logs reads the daemon log file for the logs command: the last N
// lines on demand, and new lines as they are appended when following.
package logs
