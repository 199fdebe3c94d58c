/*
Package api implements the master's HTTP/JSON surface.

User-facing endpoints cover deployment CRUD and read access to pods and
nodes. Agent-facing endpoints cover registration, heartbeats, per-node pod
listing, and pod status reports. Errors always arrive as a non-2xx status
with an {"error": "..."} body; error kinds map to statuses as

	not found          404
	already exists     409
	invalid spec       400
	illegal transition 400
	evicted            410
	anything else      500
*/
package api
