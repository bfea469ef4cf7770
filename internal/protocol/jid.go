package protocol

import "strings"

const (
	PNServer    = "s.whatsapp.net"
	LIDServer   = "lid"
	GroupServer = "g.us"
	Broadcast   = "status@broadcast"
)

// SplitJID separates user and server. The device and agent parts of the user
// are dropped, so "1555:12@s.whatsapp.net" yields ("1555", "s.whatsapp.net").
func SplitJID(jid string) (user, server string) {
	jid = strings.TrimSpace(jid)
	user, server, _ = strings.Cut(jid, "@")
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user, server
}

// UserOf returns the bare user part of a jid.
func UserOf(jid string) string {
	u, _ := SplitJID(jid)
	return u
}

// Normalize drops the device part and keeps the server.
func Normalize(jid string) string {
	u, s := SplitJID(jid)
	if s == "" {
		return u
	}
	return u + "@" + s
}

func PN(user string) string  { return user + "@" + PNServer }
func LID(user string) string { return user + "@" + LIDServer }

func IsGroup(jid string) bool {
	return strings.HasSuffix(jid, "@"+GroupServer)
}

func IsLID(jid string) bool {
	return strings.HasSuffix(jid, "@"+LIDServer)
}

func IsPN(jid string) bool {
	return strings.HasSuffix(jid, "@"+PNServer)
}

// SameUser reports whether a and b name the same account, ignoring devices.
func SameUser(a, b string) bool {
	return a != "" && Normalize(a) == Normalize(b)
}
