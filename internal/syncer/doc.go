// Package syncer pushes the local store to the remote store and applies
// remote changes back.
//
// A flush pauses remote-change delivery, reads a full snapshot of every
// local table, uploads it as the user's new remote document and resumes.
// While paused, incoming remote changes are dropped: the upload in progress
// is the newest truth, and applying an older remote document underneath it
// would re-trigger an upload of stale data.
//
// A remote change whose content checksum matches the local snapshot is an
// echo of an upload that already reflects local state, and is skipped.
package syncer
