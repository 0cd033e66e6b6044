/*
Package types defines prewarm's information model. Which is rather simple and
mainly revolves around [Origin], a normalized scheme+host+port triple, as
well as [PreconnectRequest] warm-up hints and the aggregated
[PreconnectStats] reported back after a navigation's warm-up work finished.

Origins deliberately carry no path, query, or userinfo parts: speculative
name resolution and socket preconnection operate strictly below the resource
level, so anything beyond scheme+host+port would only invite confusion about
what exactly got warmed up.

All types in this package are plain values that are safe to copy and to send
over channels; none of them hang on to any live network state.
*/
package types
