// Package meta is the metadata repository: the central cache of the
// persistence descriptions of managed classes, named queries and sequences.
//
// # Overview
//
// A Repository serves metadata lazily. The first lookup of a class asks the
// configured Factory for it, then resolves it: superclasses before
// subclasses, referenced types along the way, and mapping information once
// the whole batch of types touched by the lookup has its core metadata.
// Types that fail to resolve are evicted and every error of the pass is
// reported together to the caller that started it.
//
// # Core Types
//
//   - Repository: the cache, the resolution engine and the lookup facade
//   - ClassMetaData / FieldMetaData: per-class persistence descriptions
//   - QueryMetaData, SequenceMetaData, XMLClassMetaData: secondary metadata
//   - Factory: the pluggable source of metadata
//   - ClassRegistry: the runtime that announces classes as they load
//
// # Indexes
//
// Classes announced by the ClassRegistry are buffered by Register and
// indexed lazily, by alias (GetMetaDataByAlias), by application identity
// class (GetMetaDataByID) and by the interfaces and non-managed superclasses
// they implement (ImplementorMetaDatas).
//
// # Concurrency
//
// Every method is safe for concurrent use. After a successful Preload the
// repository is immutable and stops locking altogether.
//
// Example:
//
//	repo, err := meta.NewRepository(factory, meta.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	cmd, err := repo.GetMetaData(orderClass, loader, true)
package meta
