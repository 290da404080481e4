// Package topics holds the routing state of the relay: for every topic key,
// the set of live connections subscribed to it.
//
// Topic keys are structured strings of the form "<kind>:<id>", for example
// "user:42" or "channel:general". A topic exists only while it has members;
// looking up an unknown key yields an empty audience, never an error.
package topics
