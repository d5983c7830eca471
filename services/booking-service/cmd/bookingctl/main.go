// Command bookingctl is the operator CLI for the scheduling engine: it applies
// migrations, onboards venues, prints availability and probes a running server.
package main

func main() {
	Execute()
}
