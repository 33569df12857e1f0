/*
Package storage is the artifact store used for original images and their
derived thumbnails.

Keys are slash-separated paths relative to the store root, for example
"entries/2024/cat.png". The Storage interface is the only capability the
thumbnail pipeline needs: existence checks, whole-object saves, idempotent
deletes, reads, and the local path and public URL of a key.

FileSystem is the disk implementation. Writes go to a temporary file in the
target directory and are renamed into place, so readers never observe a
partially written artifact. Saves and deletes on the same key are serialised
inside the process. Stat and open calls retry NFS stale file handle errors
with exponential backoff:

	store, err := storage.NewFileSystem(storage.Config{
	    Root:    "/media",
	    BaseURL: "/media/",
	})
	key, err := store.Save(ctx, "entries/cat.png", r, false)

When overwrite is false and the key is taken, Save stores the content under
"<stem>_<8 hex chars>.<ext>" instead and returns that key.

Metrics are reported through an Observer registered with SetObserver, which
keeps this package free of a dependency on the metrics package.
*/
package storage
