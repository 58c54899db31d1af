package databases

// Close releases each pg-backed store's pool. Manager.Close reaches
// pgSearch's Close through an interface assertion; Manager does not hold a
// pgvectorStore.
func (p *pgSearch) Close() { p.pool.Close() }

func (p *pgvectorStore) Close() { p.pool.Close() }
