package main

import "time"

const (
	txQueueSize       = 64   // async TX queue towards serial/SocketCAN
	serialReadBufSize = 4096 // per read() buffer for serial backend
	// largeBufferReclaimThreshold is the capacity above which the drained
	// serial RX accumulator is reallocated, so bursts of noise do not pin a
	// large backing array.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
	// socketCANReadTimeout bounds each SocketCAN read so the RX loop sees shutdown.
	socketCANReadTimeout = 200 * time.Millisecond
)

// Bus latencies of the simulated controller, in register reads.
const (
	simResetDelay     = 2
	simEnterInitDelay = 4
	simLeaveInitDelay = 4
	simTransmitDelay  = 8
)
