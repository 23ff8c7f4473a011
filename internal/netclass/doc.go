// Package netclass classifies IP literals by the network path they imply.
//
// An address seen in a DNS answer, a routing table or a traceroute hop is
// one of:
//   - PrivateRFC1918: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16
//   - GooglePrivateAccess: 199.36.153.0/24 (restricted) and 199.36.154.0/23
//     (private), the ranges reserved for reaching Google APIs without the
//     public internet
//   - Public: any other well-formed address
//
// Malformed input is an error (ErrInvalidAddress), never Public. Treating
// garbage as public would raise false "insecure path" alarms.
package netclass
