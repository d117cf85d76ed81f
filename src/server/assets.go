package server

import _ "embed"

//go:embed web/chat.html
var chatPage []byte

//go:embed web/static/chat.js
var chatScript []byte
