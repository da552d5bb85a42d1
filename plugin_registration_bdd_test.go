package modhost

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

var (
	errRegistrationSucceeded = errors.New("registration should have failed")
	errUnexpectedDependency  = errors.New("unexpected dependency list")
	errUnexpectedPluginCount = errors.New("unexpected number of plugins")
	errUnexpectedState       = errors.New("unexpected plugin state")
	errUnexpectedHooks       = errors.New("unexpected hook calls")
)

// registrationBDDContext holds the state of one registration scenario.
type registrationBDDContext struct {
	t       *testing.T
	host    *testHost
	calls   *hooks
	sources map[string]pluginFixture
	lastErr error
	errs    []error
}

func (c *registrationBDDContext) reset() {
	c.host = nil
	c.calls = &hooks{}
	c.sources = make(map[string]pluginFixture)
	c.lastErr = nil
	c.errs = nil
}

func (c *registrationBDDContext) iHaveAnInitializedPluginManager() error {
	c.host = newTestHost(c.t)
	return nil
}

func (c *registrationBDDContext) aCodeSourcePublishingPlugin(id, ver string) error {
	c.sources[id] = fixture(id, ver, c.calls)
	return nil
}

func (c *registrationBDDContext) aCodeSourcePublishingPluginRequiring(id, ver, dep, constraint string) error {
	c.sources[id] = fixture(id, ver, c.calls, dep, constraint)
	return nil
}

func (c *registrationBDDContext) aCodeSourcePublishingPluginThatFails(id, ver string) error {
	s := fixture(id, ver, c.calls)
	s.plugin.initErr = fmt.Errorf("plugin %s refuses to initialize", id)
	c.sources[id] = s
	return nil
}

func (c *registrationBDDContext) register(id, key string) {
	_, err := c.host.manager.Register(context.Background(), source(key, c.sources[id]), id, nil)
	c.lastErr = err
	c.errs = append(c.errs, err)
}

func (c *registrationBDDContext) iRegisterPlugin(id string) error {
	c.register(id, id+".zip")
	return nil
}

func (c *registrationBDDContext) iRegisterPluginAgain(id string) error {
	c.register(id, id+"-copy.zip")
	return nil
}

func (c *registrationBDDContext) theRegistrationShouldSucceed() error {
	return errors.Join(c.errs...)
}

func (c *registrationBDDContext) failedWith(target error) error {
	if c.lastErr == nil {
		return errRegistrationSucceeded
	}
	if !errors.Is(c.lastErr, target) {
		return fmt.Errorf("expected %w, got %w", target, c.lastErr)
	}
	return nil
}

func (c *registrationBDDContext) theRegistrationShouldFailWithAVersionMismatch() error {
	return c.failedWith(ErrDependencyVersionMismatch)
}

func (c *registrationBDDContext) theRegistrationShouldFailWithAMissingDependency() error {
	return c.failedWith(ErrDependencyNotFound)
}

func (c *registrationBDDContext) theRegistrationShouldFailBecauseTheIDIsTaken() error {
	return c.failedWith(ErrAlreadyRegistered)
}

func (c *registrationBDDContext) pluginShouldDependOn(id, dep string) error {
	d, err := c.host.manager.GetPlugin(context.Background(), id)
	if err != nil {
		return err
	}
	var ids []string
	for _, dd := range d.Dependencies() {
		ids = append(ids, dd.ID())
	}
	if !slices.Equal(ids, []string{dep}) {
		return fmt.Errorf("%w: %v", errUnexpectedDependency, ids)
	}
	return nil
}

func (c *registrationBDDContext) pluginShouldNotBeRegistered(id string) error {
	_, err := c.host.manager.GetPlugin(context.Background(), id)
	if !errors.Is(err, ErrPluginNotFound) {
		return fmt.Errorf("expected %w, got %v", ErrPluginNotFound, err)
	}
	return nil
}

func (c *registrationBDDContext) pluginsShouldBeRegistered(n int) error {
	plugins, err := c.host.manager.GetPlugins(context.Background())
	if err != nil {
		return err
	}
	if len(plugins) != n {
		return fmt.Errorf("%w: want %d, got %d", errUnexpectedPluginCount, n, len(plugins))
	}
	return nil
}

func (c *registrationBDDContext) iInitializeAndStartThePlugins() error {
	ctx := context.Background()
	if err := c.host.manager.InitializePlugins(ctx); err != nil {
		return err
	}
	return c.host.manager.StartPlugins(ctx)
}

func (c *registrationBDDContext) pluginShouldBeIn(id string, want State) error {
	d, err := c.host.manager.GetPlugin(context.Background(), id)
	if err != nil {
		return err
	}
	if d.State() != want {
		return fmt.Errorf("%w: %s is %s, want %s", errUnexpectedState, id, d.State(), want)
	}
	return nil
}

func (c *registrationBDDContext) pluginShouldBeActive(id string) error {
	return c.pluginShouldBeIn(id, StateActive)
}

func (c *registrationBDDContext) pluginShouldHaveFailed(id string) error {
	return c.pluginShouldBeIn(id, StateFailed)
}

func (c *registrationBDDContext) onlyPluginShouldHaveBeenStarted(id string) error {
	var started []string
	for _, call := range c.calls.snapshot() {
		if name, ok := strings.CutPrefix(call, "start:"); ok {
			started = append(started, name)
		}
	}
	if !slices.Equal(started, []string{id}) {
		return fmt.Errorf("%w: started %v", errUnexpectedHooks, started)
	}
	return nil
}

func initializeRegistrationScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		c := &registrationBDDContext{t: t}

		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			c.reset()
			return ctx, nil
		})

		ctx.Step(`^I have an initialized plugin manager$`, c.iHaveAnInitializedPluginManager)
		ctx.Step(`^a code source publishing plugin "([^"]*)" at version "([^"]*)"$`, c.aCodeSourcePublishingPlugin)
		ctx.Step(`^a code source publishing plugin "([^"]*)" at version "([^"]*)" requiring "([^"]*)" "([^"]*)"$`, c.aCodeSourcePublishingPluginRequiring)
		ctx.Step(`^a code source publishing plugin "([^"]*)" at version "([^"]*)" that fails to initialize$`, c.aCodeSourcePublishingPluginThatFails)
		ctx.Step(`^I register plugin "([^"]*)"$`, c.iRegisterPlugin)
		ctx.Step(`^I register plugin "([^"]*)" again from another code source$`, c.iRegisterPluginAgain)
		ctx.Step(`^I initialize and start the plugins$`, c.iInitializeAndStartThePlugins)

		ctx.Step(`^the registration should succeed$`, c.theRegistrationShouldSucceed)
		ctx.Step(`^the registration should fail with a version mismatch$`, c.theRegistrationShouldFailWithAVersionMismatch)
		ctx.Step(`^the registration should fail with a missing dependency$`, c.theRegistrationShouldFailWithAMissingDependency)
		ctx.Step(`^the registration should fail because the id is taken$`, c.theRegistrationShouldFailBecauseTheIDIsTaken)
		ctx.Step(`^plugin "([^"]*)" should depend on "([^"]*)"$`, c.pluginShouldDependOn)
		ctx.Step(`^plugin "([^"]*)" should not be registered$`, c.pluginShouldNotBeRegistered)
		ctx.Step(`^(\d+) plugins should be registered$`, c.pluginsShouldBeRegistered)
		ctx.Step(`^plugin "([^"]*)" should be active$`, c.pluginShouldBeActive)
		ctx.Step(`^plugin "([^"]*)" should have failed$`, c.pluginShouldHaveFailed)
		ctx.Step(`^only plugin "([^"]*)" should have been started$`, c.onlyPluginShouldHaveBeenStarted)
	}
}

// TestPluginRegistration runs the BDD scenarios for plugin registration.
func TestPluginRegistration(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeRegistrationScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/plugin_registration.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
