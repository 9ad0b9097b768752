// Package instagram implements the private-API client used to scrape
// source accounts, upload approved clips, and leave credit comments.
//
// Authentication is session-first: a saved session file is tried and
// verified before falling back to a credential login with bounded
// retries. Challenge and checkpoint responses abort the retry loop
// immediately since retrying them only locks the account harder.
package instagram
