// Package discovery announces a provisioned device on the local network with
// mDNS/DNS-SD and finds announced devices.
//
// Once a device has joined its network it registers an _http._tcp service so
// the configuration API can be reached by name. The instance name is the
// device hostname; TXT records carry the firmware version and operating mode:
//
//	kitchen-sensor-1._http._tcp.local.  TXT "ver=1.2.0" "mode=app" "path=/"
//
// Devices in provisioning mode are reachable only through their own access
// point and are not announced.
package discovery
