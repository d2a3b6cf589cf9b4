// Package quarry provides a content-addressed block store and a Merkle DAG
// builder on top of it.
//
// Content is split into fixed-size chunks. Every chunk is stored as a raw
// block under its CIDv1 (sha2-256), and one DAG-CBOR root node links to all
// chunks in order. Identical bytes always produce identical CIDs, so stored
// content is verifiable and deduplicated.
//
// Blocks are kept in pages of an ordered key-value index persisted in a
// log-structured object heap. The heap compacts itself once superseded
// objects outnumber live ones.
//
// Basic usage:
//
//	q, _ := quarry.Open("~/.local/share/quarry")
//	defer q.Close()
//
//	// Store a file as a DAG
//	info, _ := q.AddFile(ctx, "video.mp4")
//	fmt.Println(info.Root, info.Leaves)
//
//	// Read it back
//	q.Cat(ctx, info.Root, os.Stdout)
//
//	// Raw blocks
//	c, _ := q.Put(ctx, []byte("morrocan mint tea"))
//	data, ok, _ := q.Get(ctx, c)
//	q.DeleteBlock(ctx, c)
//
//	// Check integrity
//	err := q.Verify(ctx, info.Root)
//
// A Quarry handle is single-writer: callers must not use one handle from
// several goroutines at once.
package quarry
