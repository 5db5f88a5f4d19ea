/*
Package fetch is the data-fetching layer the revalidation policy plugs into.

HTTPFetcher loads keys from an upstream through resty, guarded by a circuit
breaker, and tags every failure with its fault kind at the point of origin.

Revalidator is a small stale-while-revalidate cache over a Fetcher. It owns
scheduling: for each failure it calls the policy's OnError and OnErrorRetry
hooks, and the policy decides whether and when to call back. It listens on
the lifecycle bus and holds back periodic refresh and due retries while the
session is idle. Focus revalidation goes through the policy's throttle.
*/
package fetch
