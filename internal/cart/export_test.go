package cart

func HasPending[T any](c *Coalescer[T]) bool { return c.hasPending() }
