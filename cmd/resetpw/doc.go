// Command resetpw manages the admin API password from the command line.
// It is intended for operators who have lost access to the HTTP API and
// need to reset the password directly against the database file.
package main
