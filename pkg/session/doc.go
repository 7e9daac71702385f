/*
Package session implements session lifecycle management on top of the
snapshot store.

It serializes concurrent turns against the same session with in-process
reference-counted locks, optionally backed by a distributed locker when
running multiple replicas, and runs the idle-session sweeper that expires
abandoned conversations.
*/
package session
