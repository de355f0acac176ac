// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

/*
Package websocket pushes live updates to admin clients.

Two kinds of message are broadcast, both as JSON envelopes of the form
{"type": ..., "data": ...}:

  - job_progress: service registration jobs moving through
    pending, running, succeeded or failed with a 0-100 progress value
  - proxy_activity: a summary of every logged proxy request

Clients may send {"type":"ping"} and receive {"type":"pong"}.

The Hub runs as a supervised service (Serve). Broadcasts never block the
caller: when the hub queue or a client's send buffer is full the message is
dropped for that client and slow clients are disconnected.
*/
package websocket
