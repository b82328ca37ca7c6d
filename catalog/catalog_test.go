package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	plans := c.Plans()
	require.Len(t, plans, 4)
	assert.Equal(t, "Basic", plans[0].Name)
	assert.Equal(t, "Basic", c.First().Name)

	premium, ok := c.Get("premium")
	require.True(t, ok)
	assert.Equal(t, "100.00", premium.Price.StringFixed(2))
	assert.Equal(t, 4, premium.DurationMonths)
	require.NotNil(t, premium.Stipend)
	assert.Equal(t, "6.00", premium.Stipend.Amount.StringFixed(2))
	assert.Equal(t, 3, premium.Stipend.Months)
	assert.Equal(t, BonusPercentage, premium.ReferralBonus.Type)
	assert.Equal(t, "15", premium.ReferralBonus.Amount.String())
	assert.NotEmpty(t, premium.ReferralBonus.Tiers)
	assert.Equal(t, RewardPlanUpgrade, premium.ReferralBonus.Milestones[3].Reward.Kind)

	_, ok = c.Get("Platinum")
	assert.False(t, ok)
}

func TestMarshalRoundTrip(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	out, err := c.Marshal()
	require.NoError(t, err)

	again, err := Load(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Len(t, again.Plans(), len(c.Plans()))
}

func TestLoadRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty": `plans: []`,
		"duplicate name": `
plans:
  - {name: A, price: 1, duration_months: 1, referral_bonus: {type: fixed, amount: 1}}
  - {name: a, price: 1, duration_months: 1, referral_bonus: {type: fixed, amount: 1}}
`,
		"unknown bonus type": `
plans:
  - {name: A, price: 1, duration_months: 1, referral_bonus: {type: ratio, amount: 1}}
`,
		"descending tiers": `
plans:
  - name: A
    price: 10
    duration_months: 1
    referral_bonus:
      type: percentage
      amount: 5
      tiers:
        - {threshold: 5, bonus_amount: 1}
        - {threshold: 2, bonus_amount: 2}
`,
		"upgrade to unknown plan": `
plans:
  - name: A
    price: 10
    duration_months: 1
    referral_bonus:
      type: percentage
      amount: 5
      milestones:
        - {threshold: 5, reward: {kind: plan_upgrade, plan: Z}}
`,
		"zero duration": `
plans:
  - {name: A, price: 1, duration_months: 0, referral_bonus: {type: fixed, amount: 1}}
`,
		"unknown field": `
plans:
  - {name: A, price: 1, duration_months: 1, colour: red, referral_bonus: {type: fixed, amount: 1}}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileEmptyPathUsesDefault(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.Plans(), 4)

	_, err = LoadFile("/nonexistent/plans.yaml")
	assert.Error(t, err)
}
