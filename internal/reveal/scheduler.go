package reveal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// scheduleReveal arms a one-shot timer at startedAt + limit + buffer.
// Idempotent per activation: a re-delivered or duplicated activation event
// carrying the same startedAt never arms a second timer, and a genuinely
// new activation replaces the old timer atomically so exactly one timer is
// live per session.
func (o *Orchestrator) scheduleReveal(ctx context.Context, sessionID uuid.UUID, startedAt time.Time, limit time.Duration) {
	o.lastScheduledMu.Lock()
	if lastBase, exists := o.lastScheduled[sessionID]; exists && lastBase.Equal(startedAt) {
		o.lastScheduledMu.Unlock()
		log.Debug().
			Str("session_id", sessionID.String()).
			Time("started_at", startedAt).
			Msg("skipping duplicate schedule - already armed for this activation")
		return
	}
	o.lastScheduled[sessionID] = startedAt
	o.lastScheduledMu.Unlock()

	deadline := startedAt.Add(limit).Add(o.buffer)
	duration := deadline.Sub(o.clock.Now())
	if duration <= 0 {
		// Already overdue (recovered an old activation); reveal now.
		o.removeScheduled(sessionID)
		o.enqueue(ctx, sessionID)
		return
	}

	timer := o.clock.NewTimer(duration)
	o.replaceTimer(sessionID, timer)

	go func(id uuid.UUID, t clockwork.Timer) {
		select {
		case <-t.Chan():
			o.removeTimer(id)
			o.removeScheduled(id)
			o.enqueue(ctx, id)
		case <-ctx.Done():
			stopAndDrainTimer(t)
			o.removeTimer(id)
			o.removeScheduled(id)
			log.Debug().Str("session_id", id.String()).Msg("timer cancelled due to context cancellation")
		}
	}(sessionID, timer)

	log.Debug().
		Str("session_id", sessionID.String()).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("scheduled auto-reveal timer")
}

// replaceTimer atomically replaces a session's timer, cancelling any
// existing one so a new timer cannot slip in between Stop and delete.
func (o *Orchestrator) replaceTimer(sessionID uuid.UUID, newTimer clockwork.Timer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existingTimer, exists := o.activeTimers[sessionID]; exists {
		stopAndDrainTimer(existingTimer)
		log.Debug().Str("session_id", sessionID.String()).Msg("replaced existing timer")
	}

	o.activeTimers[sessionID] = newTimer
}

// cancelTimer cancels and removes a session's pending timer
func (o *Orchestrator) cancelTimer(sessionID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if timer, exists := o.activeTimers[sessionID]; exists {
		stopAndDrainTimer(timer)
		delete(o.activeTimers, sessionID)
		o.removeScheduled(sessionID)
		log.Debug().Str("session_id", sessionID.String()).Msg("cancelled pending auto-reveal timer")
	}
}

// removeTimer removes a timer from the active map (called when it fires)
func (o *Orchestrator) removeTimer(sessionID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	delete(o.activeTimers, sessionID)
}

func (o *Orchestrator) removeScheduled(sessionID uuid.UUID) {
	o.lastScheduledMu.Lock()
	defer o.lastScheduledMu.Unlock()
	delete(o.lastScheduled, sessionID)
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// RunScheduler loops forever, sleeping until the next stored deadline and
// firing overdue reveals. The store poll makes the schedule survive lost
// events and process restarts; event-armed timers only shave latency off
// what this loop would do anyway.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Int("workers", o.numWorkers).Msg("reveal scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(o.workCh)
		wg.Wait()

		o.activeTimersMu.Lock()
		for sessionID, timer := range o.activeTimers {
			stopAndDrainTimer(timer)
			log.Debug().Str("session_id", sessionID.String()).Msg("cancelled timer on shutdown")
		}
		o.activeTimers = make(map[uuid.UUID]clockwork.Timer)
		o.activeTimersMu.Unlock()

		log.Info().Str("instance", o.instanceID).Msg("scheduler shut down")
	}()

	if err := o.Rearm(ctx); err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("failed to rearm on startup")
	}

	timer := o.clock.NewTimer(0)
	defer timer.Stop()

	const idlePollDuration = 5 * time.Second
	retryCount := 0
	const maxRetries = 3

	for {
		select {
		case <-o.wakeCh:
			log.Debug().Str("instance", o.instanceID).Msg("drained wake channel")
		default:
		}

		nd, err := o.sessions.FetchNextRevealDeadline(ctx)
		if err != nil {
			retryCount++
			if retryCount <= maxRetries {
				log.Error().
					Err(err).
					Int("retry", retryCount).
					Str("instance", o.instanceID).
					Msg("error fetching next reveal deadline, retrying")
				timer.Reset(time.Second * time.Duration(retryCount))
				select {
				case <-timer.Chan():
					continue
				case <-ctx.Done():
					return nil
				}
			}
			log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching next reveal deadline after retries")
			return err
		}
		retryCount = 0

		if nd == nil {
			timer.Reset(idlePollDuration)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				log.Info().Str("instance", o.instanceID).Msg("shutdown during idle (no active question)")
				return nil
			case <-o.wakeCh:
				log.Debug().Str("instance", o.instanceID).Msg("woken up from idle")
				continue
			}
		}

		wait := nd.Deadline.Add(o.buffer).Sub(o.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
				log.Info().Str("instance", o.instanceID).Msg("deadline reached — fetching due sessions")
			case <-ctx.Done():
				log.Info().Str("instance", o.instanceID).Msg("shutdown during wait")
				return nil
			case <-o.wakeCh:
				log.Debug().Str("instance", o.instanceID).Msg("woken up early — schedule changed")
				continue
			}
		}

		// Due means the buffered deadline has passed: deadline <= now - buffer.
		cutoff := o.clock.Now().Add(-o.buffer)
		due, err := o.sessions.FetchSessionsDueForReveal(ctx, cutoff, o.batchSize)
		if err != nil {
			log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching due sessions")
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if len(due) > 0 {
			log.Info().
				Int("count_due", len(due)).
				Int32("batch_size", o.batchSize).
				Str("instance", o.instanceID).
				Msg("processing due sessions")

			for _, sessionID := range due {
				select {
				case <-ctx.Done():
					log.Info().Str("instance", o.instanceID).Msg("shutdown while queueing reveals")
					return nil
				default:
					o.enqueue(ctx, sessionID)
				}
			}
		} else {
			// Deadline passed but nothing due (already revealed); avoid a
			// hot loop until the next schedule change.
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				return nil
			case <-o.wakeCh:
			}
		}
	}
}

// Wake nudges the scheduler to re-read the deadline, typically after a new
// question activation made the next deadline sooner.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}
