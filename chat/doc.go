// Package chat tracks who is present in a channel's chat over Twitch IRC.
//
// Roster is an alternative chatter source to the tmi.twitch.tv endpoint. It
// connects anonymously (no credentials), requests the membership capability
// and keeps a roster from JOIN, PART and NAMES messages. Roles are learned
// from the badges on PRIVMSG lines: broadcaster, moderator and vip badges map
// onto the matching chatters category and everyone else is a viewer.
//
// Fetch returns the roster as a snapshot in the same shape the HTTP client
// produces. Asking for a different channel departs the old one, joins the new
// one and starts from an empty roster.
package chat
