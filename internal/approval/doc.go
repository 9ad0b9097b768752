// Package approval coordinates admin sign-off between the scheduler and
// the Telegram callback handler. A job blocks in Wait until the admin's
// button press resolves the pending request or the timeout lapses; every
// outcome is written to the approvals audit table.
package approval
