// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cache provides a thread-safe in-memory TTL cache.

It backs the library's cache table (search results, alias lookups, episode
lists) with a fast in-process read path: the DuckDB-backed
internal/library.Store remains authoritative for TTL bookkeeping and
provider-tagged bulk clear, while this cache short-circuits repeat reads
within a process lifetime.

Keys follow the convention used by the search pipeline and providers:

	search_base_<title>_<season|all>
	episodes:<provider>:<mediaId>
	geo:ip=1.2.3.4

Expired entries are removed lazily on Get and swept every 5 minutes by a
background goroutine; there is no size-based eviction, which is acceptable
given the dataset this service caches (search results and episode lists,
not raw comment streams).
*/
package cache
