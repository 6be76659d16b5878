package net

// RPC is an inbound message. From is the advertised address of the sender.
type RPC struct {
	From    string
	Command interface{}
}
