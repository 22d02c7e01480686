// Package indexsync embeds the index sync engine in a Go program.
//
// The host application owns its entities. It describes how each entity type is
// projected into a search document, then reports saves and deletes so the
// index follows the system of record:
//
//	client, _ := indexsync.New(ctx, indexsync.WithRedis([]string{"localhost:6379"}, ""))
//	defer client.Close(ctx)
//
//	_ = client.Register("shop.Book", &indexsync.Descriptor{
//	    Index:   "products",
//	    Manager: books,
//	    Fields: []indexsync.FieldSpec{
//	        indexsync.Field(indexsync.Attr("title")),
//	        indexsync.Field(indexsync.Path("author.name")).Named("author"),
//	    },
//	    Cascades: []indexsync.CascadeRule{indexsync.CascadeAttr("author")},
//	})
//
//	_ = client.Saved(ctx, book)
//	snapshot := book.Snapshot()
//	_ = client.Deleting(ctx, book)
//	_ = client.Deleted(ctx, snapshot)
//
//	report, _ := client.Reindex(ctx, "products")
//	rs, _ := client.Search("shop.Book", "dune")
//	books, _ := rs.Slice(ctx, 0, 10)
package indexsync
