/*
Package session composes the coordinator for one page session.

A Session owns a private lifecycle bus, the idle machine broadcasting on it,
the revalidation policy and, when configured, a renderer and a revalidator.
Start wires them together and returns a disposer; a restarted session must
be disposed first, so listeners are never installed twice.

The Manager keys sessions by UUID for the daemon API.
*/
package session
