package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	testingutil "github.com/amirphl/marketplace-settlement/testing"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDB(t *testing.T, fn func(testDB *testingutil.TestDB) error) {
	t.Helper()
	err := testingutil.TestWithDB(fn)
	if errors.Is(err, testingutil.ErrNoTestDB) {
		t.Skipf("postgres not available: %v", err)
	}
	require.NoError(t, err)
}

func TestCommissionRuleRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewCommissionRuleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByScope", func(t *testing.T) {
			scope := models.SellerProductScope("seller_1", "prod+1")
			rule, err := fixtures.CreateTestRule(scope, "12.5")
			require.NoError(t, err)

			found, err := repo.ByScope(ctx, scope)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, rule.ID, found.ID)
			assert.Equal(t, "seller_1+prod%2B1", found.ReferenceID)
			require.NotNil(t, found.Rate)
			assert.Equal(t, "12.5", found.Rate.PercentageRate.String())

			decoded, err := found.Scope()
			require.NoError(t, err)
			assert.Equal(t, scope, decoded)
		})

		t.Run("ByScopeNotFound", func(t *testing.T) {
			found, err := repo.ByScope(ctx, models.ProductScope("missing"))
			assert.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("UniqueScope", func(t *testing.T) {
			scope := models.SellerScope("seller_unique")
			_, err := fixtures.CreateTestRule(scope, "5")
			require.NoError(t, err)
			_, err = fixtures.CreateTestRule(scope, "6")
			assert.Error(t, err)
		})

		t.Run("ActiveByScopes", func(t *testing.T) {
			site, err := fixtures.CreateTestRule(models.SiteScope(), "10")
			require.NoError(t, err)
			seller, err := fixtures.CreateTestRule(models.SellerScope("seller_2"), "7")
			require.NoError(t, err)
			inactive, err := fixtures.CreateTestRule(models.ProductScope("prod_inactive"), "3")
			require.NoError(t, err)
			inactive.IsActive = false
			require.NoError(t, repo.Update(ctx, inactive))

			ctxScopes := models.CommissionCalculationContext{ProductID: "prod_inactive", SellerID: "seller_2"}
			rules, err := repo.ActiveByScopes(ctx, ctxScopes.CandidateScopes())
			require.NoError(t, err)

			ids := make([]uint, 0, len(rules))
			for _, r := range rules {
				ids = append(ids, r.ID)
				assert.NotNil(t, r.Rate)
			}
			assert.ElementsMatch(t, []uint{site.ID, seller.ID}, ids)
		})

		t.Run("SoftDeleteFreesScope", func(t *testing.T) {
			scope := models.ProductTypeScope("type_1")
			rule, err := fixtures.CreateTestRule(scope, "4")
			require.NoError(t, err)

			require.NoError(t, repo.SoftDelete(ctx, rule.ID))

			found, err := repo.ByID(ctx, rule.ID)
			require.NoError(t, err)
			assert.Nil(t, found)

			_, err = fixtures.CreateTestRule(scope, "4")
			assert.NoError(t, err)
		})

		t.Run("ByFilter", func(t *testing.T) {
			kind := models.ScopeProductCategory
			_, err := fixtures.CreateTestRule(models.ProductCategoryScope("cat_a"), "2")
			require.NoError(t, err)
			_, err = fixtures.CreateTestRule(models.ProductCategoryScope("cat_b"), "2")
			require.NoError(t, err)

			rules, err := repo.ByFilter(ctx, models.CommissionRuleFilter{Reference: &kind}, "", 1, 0)
			require.NoError(t, err)
			assert.Len(t, rules, 1)

			count, err := repo.Count(ctx, models.CommissionRuleFilter{Reference: &kind})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		return nil
	})
}

func TestPriceAmountRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewPriceAmountRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		_, err := fixtures.CreateTestPriceAmount("ps_1", "USD", 250)
		require.NoError(t, err)

		t.Run("AmountForIgnoresCase", func(t *testing.T) {
			amount, ok, err := repo.AmountFor(ctx, "ps_1", "usd")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(250), amount)
		})

		t.Run("AmountForMissingCurrency", func(t *testing.T) {
			_, ok, err := repo.AmountFor(ctx, "ps_1", "eur")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		return nil
	})
}

func TestSplitOrderPaymentRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewSplitOrderPaymentRepository(testDB.DB)
		txManager := repository.NewTxManager(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ListByPaymentCollectionID", func(t *testing.T) {
			collectionID, payments, err := fixtures.CreateTestCheckout(3)
			require.NoError(t, err)

			listed, err := repo.ListByPaymentCollectionID(ctx, collectionID)
			require.NoError(t, err)
			require.Len(t, listed, 3)
			for i := range payments {
				assert.Equal(t, payments[i].ID, listed[i].ID)
			}
		})

		t.Run("ByOrderAndIntent", func(t *testing.T) {
			payment, err := fixtures.CreateTestSplitPayment("col_intent", 100, utils.ToPtr(models.PlatformFeeModeOnTop))
			require.NoError(t, err)

			payment.PaymentIntentID = utils.ToPtr("pi_repo_1")
			require.NoError(t, repo.Update(ctx, payment))

			byIntent, err := repo.ByPaymentIntentID(ctx, "pi_repo_1")
			require.NoError(t, err)
			require.NotNil(t, byIntent)
			assert.Equal(t, payment.OrderID, byIntent.OrderID)

			byOrder, err := repo.ByOrderID(ctx, payment.OrderID)
			require.NoError(t, err)
			require.NotNil(t, byOrder)
			assert.Equal(t, models.PlatformFeeModeOnTop, *byOrder.PlatformFeeMode)

			byUUID, err := repo.ByUUID(ctx, payment.UUID.String())
			require.NoError(t, err)
			require.NotNil(t, byUUID)
			assert.Equal(t, payment.ID, byUUID.ID)
		})

		t.Run("ByIDForUpdateRequiresTransaction", func(t *testing.T) {
			_, err := repo.ByIDForUpdate(ctx, 1)
			assert.Error(t, err)
		})

		t.Run("ByIDForUpdateSerializesWriters", func(t *testing.T) {
			payment, err := fixtures.CreateTestSplitPayment("col_lock", 0, nil)
			require.NoError(t, err)

			var wg sync.WaitGroup
			for range 5 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := txManager.WithTransaction(context.Background(), func(txCtx context.Context) error {
						locked, err := repo.ByIDForUpdate(txCtx, payment.ID)
						if err != nil {
							return err
						}
						time.Sleep(10 * time.Millisecond)
						locked.AuthorizedAmount += 100
						return repo.Update(txCtx, locked)
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			reloaded, err := repo.ByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(500), reloaded.AuthorizedAmount)
		})

		t.Run("RollbackDiscardsUpdate", func(t *testing.T) {
			payment, err := fixtures.CreateTestSplitPayment("col_rollback", 0, nil)
			require.NoError(t, err)

			boom := errors.New("boom")
			err = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
				locked, err := repo.ByIDForUpdate(txCtx, payment.ID)
				if err != nil {
					return err
				}
				locked.Status = models.SplitPaymentStatusCaptured
				if err := repo.Update(txCtx, locked); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			reloaded, err := repo.ByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SplitPaymentStatusPending, reloaded.Status)
		})

		return nil
	})
}

func TestGatewayEventRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewGatewayEventRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		event := &models.GatewayEvent{
			SplitOrderPaymentID: 1,
			IntentID:            "pi_evt",
			EventType:           "payment_intent.succeeded",
			Action:              "captured",
			Amount:              1000,
		}
		require.NoError(t, repo.Save(ctx, event))

		t.Run("ByIntentAndType", func(t *testing.T) {
			found, err := repo.ByIntentAndType(ctx, "pi_evt", "payment_intent.succeeded")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, int64(1000), found.Amount)

			missing, err := repo.ByIntentAndType(ctx, "pi_evt", "payment_intent.payment_failed")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("DuplicateRejected", func(t *testing.T) {
			dup := *event
			dup.ID = 0
			assert.Error(t, repo.Save(ctx, &dup))
		})

		return nil
	})
}

func TestCommissionLineRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewCommissionLineRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		lines := []*models.CommissionLine{
			{OrderID: "order_lines", ItemLineID: "item_1", CurrencyCode: "usd", Value: 100},
			{OrderID: "order_lines", ItemLineID: "item_2", CurrencyCode: "usd", Value: 50},
		}
		require.NoError(t, repo.SaveBatch(ctx, lines))

		t.Run("ByOrderID", func(t *testing.T) {
			found, err := repo.ByOrderID(ctx, "order_lines")
			require.NoError(t, err)
			assert.Len(t, found, 2)
		})

		t.Run("ByItemLineIDs", func(t *testing.T) {
			found, err := repo.ByItemLineIDs(ctx, []string{"item_2", "item_9"})
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, int64(50), found[0].Value)
		})

		t.Run("ItemLineWrittenOnce", func(t *testing.T) {
			err := repo.Save(ctx, &models.CommissionLine{OrderID: "order_lines", ItemLineID: "item_1", CurrencyCode: "usd", Value: 1})
			assert.Error(t, err)
		})

		return nil
	})
}

func TestAuditLogRepository(t *testing.T) {
	withDB(t, func(testDB *testingutil.TestDB) error {
		repo := repository.NewAuditLogRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		require.NoError(t, repo.Save(ctx, &models.AuditLog{
			Action:     models.AuditActionPaymentCaptured,
			EntityType: models.AuditEntitySplitPayment,
			EntityID:   7,
			Success:    utils.ToPtr(true),
		}))
		require.NoError(t, repo.Save(ctx, &models.AuditLog{
			Action:       models.AuditActionCommissionRuleCreated,
			EntityType:   models.AuditEntityCommissionRule,
			EntityID:     0,
			Success:      utils.ToPtr(false),
			ErrorMessage: utils.ToPtr("duplicate scope"),
		}))

		t.Run("ListByEntity", func(t *testing.T) {
			logs, err := repo.ListByEntity(ctx, models.AuditEntitySplitPayment, 7, 10, 0)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.True(t, logs[0].IsLedgerEvent())
		})

		t.Run("ListFailedActions", func(t *testing.T) {
			logs, err := repo.ListFailedActions(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.True(t, logs[0].IsFailed())
		})

		return nil
	})
}
