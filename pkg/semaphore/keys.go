package semaphore

// keyspace - names the logical keys backing one semaphore instance. Callers
// wanting an extra namespace prefix bake it into the semaphore name.
type keyspace struct {
	prefix string
}

func newKeyspace(name string) keyspace {
	return keyspace{prefix: "SEMAPHORE:" + name}
}

// available - list of free tokens.
func (k keyspace) available() string {
	return k.prefix + ":AVAILABLE"
}

// grabbed - hash of leased token to acquisition timestamp.
func (k keyspace) grabbed() string {
	return k.prefix + ":GRABBED"
}

// exists - marker that the keyspace has been initialized.
func (k keyspace) exists() string {
	return k.prefix + ":EXISTS"
}

// version - schema version string written at creation.
func (k keyspace) version() string {
	return k.prefix + ":VERSION"
}

// releaseLock - mutex key serializing stale-lease reclamation.
func (k keyspace) releaseLock() string {
	return k.prefix + ":RELEASE_LOCK"
}

// all - the four keys removed by Delete. The release lock is transient and
// cleans itself up.
func (k keyspace) all() []string {
	return []string{k.available(), k.grabbed(), k.exists(), k.version()}
}
