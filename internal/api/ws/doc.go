/*
Package ws streams a session's lifecycle broadcasts over a websocket.

# Protocol

Server frames are JSON objects with a "type":

	{"type":"system","session":"…","message":"connected"}
	{"type":"lifecycle","kind":"idle-start","at":"…","idle_since":"…","reason":"inactivity"}
	{"type":"lifecycle","kind":"idle-end","at":"…","idle_ms":35000,"reason":"activity"}
	{"type":"pong"}
	{"type":"error","message":"…"}

Clients report page signals on the same connection:

	{"type":"activity","kind":"pointer"}
	{"type":"visibility","hidden":true}
	{"type":"focus"}
	{"type":"ping"}

Frames are encoded with sonic. Broadcasts are buffered per connection and
dropped when a slow client falls behind.
*/
package ws
