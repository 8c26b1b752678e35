// Package bunit is a unit of work over Bun.
//
// A Context pairs a change-tracking session with a unit of work. Repositories
// and services obtained from it register additions, updates and removals in
// memory; a single Save flushes them in one transaction and reports the
// outcome:
//
//	c := bunit.NewContext(db, nil)
//	defer c.Close()
//
//	users := bunit.NewService[User](c)
//	_ = users.Add(&User{Name: "ada"})
//	ok, err := users.Save(ctx)
package bunit
