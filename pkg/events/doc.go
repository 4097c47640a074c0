/*
Package events provides an in-memory pub/sub broker for checkpoint and
restart lifecycle notifications: worker joins/leaves, cycle stage
transitions, cycle completion/abort, and restart progress.

Publish queues the event for the broker (100 slots) and blocks only
while that queue is full and the broker is not stopped. Delivery to
subscribers is non-blocking: a subscriber whose buffer (50 events) is
full misses the event. Subscribers should process events off the delivery goroutine if
their handling is not instantaneous.
*/
package events
