// Package cache remembers thumbnail load outcomes in Redis.
//
// Feeds show the same thumbnails again after a refresh or when another
// client instance runs against the same Redis. The cache stores only the
// outcome of a load (decoded or failed, plus image dimensions), never the
// image bytes and never feed pages.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key, err := cache.KeyForURL("https://b.thumbs.redditmedia.com/abc.jpg")
//	if err != nil {
//		return err
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - load through the transport
//	}
//
// # Expiry
//
// Successful outcomes honour Cache-Control max-age and Expires response
// headers (DefaultTTL when absent). Failed outcomes are kept for FailureTTL
// only, so a broken CDN edge does not pin placeholders for long.
//
// # Metrics
//
//   - topposts_image_cache_hits_total - Cache hits
//   - topposts_image_cache_misses_total - Cache misses
//   - topposts_image_cache_errors_total{operation} - Cache operation errors
package cache
