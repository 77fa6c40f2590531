// Package netio provides the replay engine's output-side transport:
// transmitting raw link-layer frames read from a capture file out a
// live network interface.
//
// On Linux, PacketSocket binds an AF_PACKET SOCK_RAW socket to an
// interface and writes frames verbatim, with no kernel-side L2/L3
// reprocessing, the nearest equivalent of a libpcap send handle.
package netio
