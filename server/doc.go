// Package server implements a small FTP server.
//
// # Overview
//
// Each control connection gets its own session. A session authenticates
// against a static credential table, keeps a virtual working directory
// inside the user's home directory, and serves LIST, RETR and STOR over a
// separate data connection in active (PORT) or passive (PASV) mode.
//
// Supported commands: USER, PASS, QUIT, ABOR, CDUP, CWD, PWD, TYPE, PORT,
// PASV, LIST, RETR and STOR. Anything else is answered with 502.
//
// # Getting Started
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/gonzalop/ftpd/auth"
//	    "github.com/gonzalop/ftpd/server"
//	)
//
//	func main() {
//	    hash, _ := auth.Hash("secret", auth.DefaultCost)
//	    table := auth.NewTable(map[string]string{"alice": hash})
//
//	    // Homes live under /srv/ftp/<user>
//	    driver, err := server.NewFSDriver("/srv/ftp", table)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    s, err := server.NewServer(":21", server.WithDriver(driver))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Aborting Transfers
//
// USER, PASS, QUIT and ABOR are handled as soon as they are read. All other
// commands run one at a time on a per-session worker, so an ABOR sent during
// a RETR, STOR or LIST is seen by the running transfer within one buffer or
// directory entry. The transfer then ends with 551.
//
// # Faults
//
// A filesystem error inside a transfer, or a malformed PORT argument, is
// treated as a fault: it is logged as session_fault and the control
// connection is closed. Other sessions keep running.
package server
