// Package ws streams realized restriction level changes to websocket
// clients.
//
// Every frame is a JSON Message. A client first receives a hello frame
// carrying its id, then one level_changed frame per realized change.
// Clients may send {"type":"ping"}; anything else is answered with an
// error frame. Clients that fall behind are disconnected.
package ws
