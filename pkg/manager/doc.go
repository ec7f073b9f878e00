// Package manager implements the provisioning state machine of a device.
//
// At boot Setup reads the persisted record, tries to join the stored network
// and ends in one of two operating modes:
//
//	UNINITIALIZED -> READING_STORE -> JOINING_NETWORK -> PROVISIONING
//	                                                 \-> APPLICATION
//
// In provisioning mode the device runs its own access point, a captive DNS
// responder answering every query with the access point address, and a web
// server with the setup page and settings API. In application mode it serves
// the same API on the joined network and announces itself over mDNS.
//
// The manager is cooperative. Loop runs one tick (provisioning timeout, one
// DNS datagram, one HTTP request) and must be called repeatedly from a single
// goroutine. Every change to persisted state ends in a device restart; the
// restart is requested from System after the response has been handed back
// to the client.
package manager
