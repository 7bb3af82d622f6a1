// Package realtime subscribes to task table changes through a hosted
// Phoenix channel websocket, as an alternative to a direct LISTEN
// connection.
package realtime
