// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

//go:build integration

package auth_test

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
)

func newUser(email string) auth.NewUser {
	return auth.NewUser{
		Name:         "Ada",
		Email:        email,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuuJ1fKFeQ7jG4sC5uH8dC2mV6nY0aB1cD",
		Role:         auth.RoleUser,
	}
}

var _ = Describe("UserRepository", func() {
	BeforeEach(func() {
		env.truncate()
	})

	Describe("Insert", func() {
		It("stores a user and returns the persisted record", func() {
			before := time.Now().Add(-time.Second)

			user, err := env.Users.Insert(env.ctx, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			Expect(user.ID).NotTo(Equal(ulid.ULID{}))
			Expect(user.Email).To(Equal("ada@example.com"))
			Expect(user.Role).To(Equal(auth.RoleUser))
			Expect(user.CreatedAt).To(BeTemporally(">", before))
			Expect(user.UpdatedAt).To(Equal(user.CreatedAt))
		})

		It("rejects an email that differs only in case", func() {
			_, err := env.Users.Insert(env.ctx, newUser("ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Users.Insert(env.ctx, newUser("ADA@Example.com"))
			Expect(errors.Is(err, auth.ErrEmailTaken)).To(BeTrue())
		})

		It("lets exactly one of many concurrent inserts for one email win", func() {
			const racers = 16
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
				others    []error
			)
			start := make(chan struct{})

			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					_, err := env.Users.Insert(env.ctx, newUser("race@example.com"))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, auth.ErrEmailTaken):
						conflicts++
					default:
						others = append(others, err)
					}
				}()
			}
			close(start)
			wg.Wait()

			Expect(others).To(BeEmpty())
			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(racers - 1))

			var rows int
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT COUNT(*) FROM users WHERE LOWER(email) = 'race@example.com'").Scan(&rows)).To(Succeed())
			Expect(rows).To(Equal(1))
		})
	})

	Describe("FindByEmail and FindByID", func() {
		It("finds users case-insensitively and by id", func() {
			created, err := env.Users.Insert(env.ctx, newUser("grace@example.com"))
			Expect(err).NotTo(HaveOccurred())

			byEmail, err := env.Users.FindByEmail(env.ctx, "GRACE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(created.ID))
			Expect(byEmail.PasswordHash).To(Equal(created.PasswordHash))

			byID, err := env.Users.FindByID(env.ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("grace@example.com"))
		})

		It("reports missing users as not found", func() {
			_, err := env.Users.FindByEmail(env.ctx, "nobody@example.com")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

			_, err = env.Users.FindByID(env.ctx, ulid.Make())
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Schema", func() {
		It("enforces the role check constraint", func() {
			_, err := env.pool.Exec(env.ctx,
				`INSERT INTO users (id, name, email, password, role) VALUES ($1, 'x', 'x@example.com', 'h', 'root')`,
				ulid.Make().String())
			Expect(err).To(HaveOccurred())
		})

		It("refreshes updated_at on update", func() {
			created, err := env.Users.Insert(env.ctx, newUser("tick@example.com"))
			Expect(err).NotTo(HaveOccurred())

			var before time.Time
			Expect(env.pool.QueryRow(env.ctx, "SELECT NOW()").Scan(&before)).To(Succeed())

			_, err = env.pool.Exec(env.ctx, "UPDATE users SET name = 'Tock' WHERE id = $1", created.ID.String())
			Expect(err).NotTo(HaveOccurred())

			var updated time.Time
			Expect(env.pool.QueryRow(env.ctx, "SELECT updated_at FROM users WHERE id = $1",
				created.ID.String()).Scan(&updated)).To(Succeed())
			Expect(updated).To(BeTemporally(">=", before))
		})

		It("is fully applied", func() {
			m, err := store.NewMigrator(env.connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = m.Close() }()

			pending, err := m.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty(), fmt.Sprintf("pending: %v", pending))
		})
	})
})
