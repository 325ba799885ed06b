package discord

import (
	"testing"
	"time"
)

func TestCooldownBurstExhaustion(t *testing.T) {
	t.Parallel()

	c := NewCooldown(time.Hour, 2, 4)

	for n := 0; n < 2; n++ {
		if !c.Allow("g1", "u1", false) {
			t.Fatalf("call %d should be allowed", n)
		}
	}
	if c.Allow("g1", "u1", false) {
		t.Error("third call within the interval should be throttled")
	}
}

func TestCooldownModeratorBurst(t *testing.T) {
	t.Parallel()

	c := NewCooldown(time.Hour, 2, 4)

	for n := 0; n < 4; n++ {
		if !c.Allow("g1", "mod", true) {
			t.Fatalf("moderator call %d should be allowed", n)
		}
	}
	if c.Allow("g1", "mod", true) {
		t.Error("moderator should hit the limit after the larger burst")
	}
}

func TestCooldownUsersIndependent(t *testing.T) {
	t.Parallel()

	c := NewCooldown(time.Hour, 1, 1)

	if !c.Allow("g1", "u1", false) {
		t.Fatal("first user should be allowed")
	}
	if !c.Allow("g1", "u2", false) {
		t.Error("second user must not share the first user's bucket")
	}
	if !c.Allow("g2", "u1", false) {
		t.Error("same user in another guild must not share the bucket")
	}
}

func TestCooldownForget(t *testing.T) {
	t.Parallel()

	c := NewCooldown(time.Hour, 1, 1)

	c.Allow("g1", "u1", false)
	if c.Allow("g1", "u1", false) {
		t.Fatal("second call should be throttled")
	}

	c.Forget("g1")
	if !c.Allow("g1", "u1", false) {
		t.Error("Forget should reset the guild's buckets")
	}
}
