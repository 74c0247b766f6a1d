// Package socketcan drives a Linux SocketCAN interface such as can0 or
// vcan0. The bit rate belongs to the network device and is set with
// `ip link set can0 type can bitrate 500000`; Install only logs the
// configured value.
package socketcan
