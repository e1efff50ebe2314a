package docstore

func Subscribers(m *MemoryStore, path string) int { return m.subscribers(path) }
