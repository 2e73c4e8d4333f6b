// Package reader provides the firmware core of the memory-chip reader.
package reader

// The reader accepts short text commands over a serial link and drives
// a parallel address bus across a configurable address range, streaming
// one data byte per address back over the same link.
//
// Wire protocol (host -> reader), terminated by CR or truncated at 8 bytes:
//
//   r        read parallel over [Min, Max]
//   l<addr>  read one location
//   i        read I2C (not implemented, placeholder bytes)
//   s        read SPI (not implemented, placeholder bytes)
//   m<addr>  set Min
//   M<addr>  set Max
//
// Responses are raw bytes without framing. There is no acknowledgement
// and no error reporting over the link.
//
// Every blocking wait kicks the watchdog, otherwise the supervisory
// timer resets the device and the address range reverts to default.
//
// Producer: reader firmware
// Consumer: host client
