// Package supabase talks to the hosted project: it signs the worker in,
// exposes the session token to other clients, and fetches asset DNA from
// the project's edge functions.
package supabase
