/*
Package memora is a long-term memory engine for AI agents.

Facts are stored as atomic, timestamped, embedded memory units joined by a
typed link graph: temporal links between events close in time, semantic links
between similar content, and entity links between units that mention the same
resolved identity. Queries fan out to four retrieval strategies in parallel
(semantic, keyword, graph activation, temporal graph), are merged with
reciprocal rank fusion, rescored by a pluggable reranker, and diversified
with maximal marginal relevance.

Basic usage:

	st := store.NewMemoryStore()
	mem := memora.New(st, embedderClient, nil, chatClient, memora.DefaultOptions(), logger)
	defer mem.Close()

	unit, err := mem.Put(ctx, memora.PutRequest{
		AgentID:  "agent-1",
		Text:     "Alice joined Acme Corp as head of research",
		FactType: types.FactWorld,
	})

	res, err := mem.Search(ctx, memora.SearchRequest{
		AgentID: "agent-1",
		Query:   "where does Alice work",
	})

Think answers a question from memory and forms opinions about the exchange
in the background:

	ans, err := mem.Think(ctx, memora.ThinkRequest{AgentID: "agent-1", Query: "is Alice senior?"})
*/
package memora
