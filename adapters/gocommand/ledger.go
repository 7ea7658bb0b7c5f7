package gocommand

import (
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	credledger "github.com/goliatone/go-credledger"
)

// Subscriptions holds dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterLedger registers and subscribes every command and query of facade.
// On error nothing stays subscribed.
func RegisterLedger(adapter *RegistryAdapter, facade *credledger.Facade, runnerOpts ...runner.Option) (Subscriptions, error) {
	if facade == nil {
		return nil, errLedgerFacadeRequired
	}
	commands := facade.Commands()
	queries := facade.Queries()

	var subs Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.Intake, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.Payout, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.RecordLedgerEvent, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.IssueCredential, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.RevokeCredential, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.CredentialStatus, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.CredentialHistory, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.ListLedgerEvents, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.DailyTotals, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.ListSchemas, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.GetSchema, runnerOpts...)
		},
	}
	for _, step := range steps {
		sub, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
