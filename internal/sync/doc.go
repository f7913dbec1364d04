// Package sync reconciles a local workspace database with its remote
// snapshot pair.
//
// # Overview
//
// Each workspace keeps its chat data in an embedded SQLite database. A
// remote (Google Drive in production) holds the last uploaded copy as an
// opaque blob pair: the binary database snapshot plus a JSON metadata file.
// The engine runs the reconciliation protocol between the two.
//
// # Architecture
//
//	Local workspace DB                      Remote (Drive)
//	  conversations, api_keys   download      <id>.db
//	  sync_status bookkeeping  <----------    <id>.meta.json
//	            |                                  ^
//	            | merge (insert/update/fork)       |
//	            v                 upload           |
//	  merged local state       ---------------->  replaced pair
//
// A cycle is download -> merge -> upload -> mark pending rows synced. The
// merge is monotonic: rows with local pending edits are never overwritten;
// when the remote copy moved too, the remote version is inserted as a fresh
// conversation under a conflict name (numbered for personal workspaces,
// username-tagged for shared ones).
//
// # Usage
//
//	remote, err := drive.NewClient(ctx, creds)
//	if err != nil {
//	    return err
//	}
//
//	engine := sync.New(remote, nil, nil)
//
//	report, err := engine.SyncWorkspace(ctx, ws, st, sync.TriggerManual)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("inserted=%d updated=%d forked=%d\n",
//	    report.Merge.Inserted, report.Merge.Updated, report.Merge.Forked)
//
// Concurrent callers are safe: at most one cycle runs per workspace, and a
// second call returns ErrSyncInFlight without blocking. Automatic triggers
// respect an exponential failure backoff; manual triggers do not.
package sync
